package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionID identifies one process run and is printed by --version.
// Grounded on cmd-version.go's
// SessionID, without the JSON build-info reporting the teacher's
// multi-platform release pipeline needed (no equivalent here).
var SessionID = uuid.New().String() + ":" + time.Now().Format("20060102T150405")

func version() string {
	if GitTag != "" {
		return GitTag
	}
	if GitCommit != "" {
		return GitCommit
	}
	return "dev"
}

func printVersion() {
	fmt.Println("SOCKSFINDER")
	fmt.Printf("Tag: %s\n", GitTag)
	fmt.Printf("Commit: %s\n", GitCommit)
	fmt.Printf("Session: %s\n", SessionID)
}
