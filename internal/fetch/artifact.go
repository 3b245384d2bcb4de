// SPDX-License-Identifier: MIT

package fetch

import (
	"os"
)

// locateArtifact verifies the grabber actually produced a usable guide file
// at path. A missing or empty file after a zero exit is still a failure.
func locateArtifact(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ArtifactMissingError{Path: path, Reason: "no output file produced"}
		}
		return &ArtifactMissingError{Path: path, Reason: err.Error()}
	}
	if info.IsDir() {
		return &ArtifactMissingError{Path: path, Reason: "output path is a directory"}
	}
	if info.Size() == 0 {
		return &ArtifactMissingError{Path: path, Reason: "output file is empty"}
	}
	return nil
}
