package config

// ExitCodeBlockingError should be returned when the scanner is completely
// inoperable. For example, the config is broken or the SMB session could not
// be established.
const ExitCodeBlockingError = 1

// ExitCodeGeneralError should be returned when the scanner was able to run
// but there were still errors. For example some scripts could not be read.
const ExitCodeGeneralError = 2

// ExitCodeLeakFound should be returned when leaks are found. If there are both
// general errors and leaks, this should be returned instead of general errors.
const ExitCodeLeakFound = 3
