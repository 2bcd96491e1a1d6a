package plugin

import (
	"errors"
	"fmt"
)

// Stage names the part of a loading pass a fatal error came from.
type Stage string

const (
	StageLoad       Stage = "load"
	StageConstruct  Stage = "construct"
	StageInitialize Stage = "initialize"
)

// FatalError aborts a loading pass. Subject is the file name, fully-qualified
// type name or plugin name, depending on the stage.
type FatalError struct {
	Stage   Stage
	Subject string
	Err     error
}

func (e *FatalError) Error() string {
	switch e.Stage {
	case StageLoad:
		return fmt.Sprintf("failed to load module %q: %v", e.Subject, e.Err)
	case StageConstruct:
		return fmt.Sprintf("could not create an instance of plugin type %q: %v", e.Subject, e.Err)
	case StageInitialize:
		return fmt.Sprintf("plugin %q failed during initialization: %v", e.Subject, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Stage, e.Subject, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err aborts the loading pass.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
