package analyzer

import (
	"errors"
	"fmt"

	"github.com/ryubing/robocop-go/internal/fetch"
	"github.com/ryubing/robocop-go/internal/logfile"
)

// ParsingMessage is posted while an accepted upload is being analysed.
const ParsingMessage = "Log detected, parsing..."

// BadFormatMessage answers an attachment that is not a log file.
func BadFormatMessage(author string) string {
	return fmt.Sprintf("%s Your file does not match the Ryujinx log format. Please check your file.", author)
}

// WrongChannelMessage points the author at the support channels.
func WrongChannelMessage(author, channels string) string {
	return fmt.Sprintf("%s Please upload log files to %s", author, channels)
}

// DuplicateMessage answers a recently analysed filename.
func DuplicateMessage(filename, author string) string {
	return fmt.Sprintf("The log file `%s` appears to be a duplicate %s. Please upload a more recent file.", filename, author)
}

// InvalidLogMessage answers text that is not a readable log.
func InvalidLogMessage(author string) string {
	return fmt.Sprintf("This log file appears to be invalid %s. Please re-check and re-upload your log file.", author)
}

// FailureMessage maps an analysis error to the user-facing reply.
func FailureMessage(err error, author string) string {
	var decodeErr *fetch.DecodeError
	if errors.As(err, &decodeErr) || errors.Is(err, logfile.ErrNoTimestamp) {
		return InvalidLogMessage(author)
	}
	return fmt.Sprintf("Error: Couldn't parse log; parser threw %s exception.", ErrorKind(err))
}
