package sfindex

// Section layout:
//
//	+-----------+-----------------+-----------------+------------------+---------+
//	|  Header   |   Page names    |  User postings  | Term dictionary  | Footer  |
//	|  4 bytes  |    variable     |    variable     |     variable     | 4 bytes |
//	+-----------+-----------------+-----------------+------------------+---------+
const (
	magicByte0 = 'S'
	magicByte1 = 'F'

	// FormatVersion is the only version this build writes and reads.
	FormatVersion uint16 = 0

	// HeaderSize is the size in bytes of the fixed header.
	HeaderSize = 4

	// FooterSize is the size in bytes of the fixed footer.
	FooterSize = 4

	// pageNamesStart is the byte offset of the first page title. Page
	// offsets are absolute positions within the file, so the first page
	// always starts right after the header.
	pageNamesStart = HeaderSize

	// titleTerminator separates consecutive page titles in the page-name
	// section.
	titleTerminator = '\n'
)

// Layout reports the byte boundaries of a sealed index's four sections,
// as used by the stats command.
type Layout struct {
	Size              int64
	PageNamesOffset   int64
	UserContribOffset int64
	DictStartOffset   int64
	DictEndOffset     int64
}
