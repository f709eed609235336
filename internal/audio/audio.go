package audio

import (
	"errors"
	"fmt"
	"os"
)

var ErrEmptyAudio = errors.New("audio file is empty")

// ValidateAudioPath checks that path is a regular, non-empty file.
func ValidateAudioPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("audio path is a directory")
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyAudio, path)
	}
	return nil
}
