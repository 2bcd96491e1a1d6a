// Package binfmt identifies executable and shared-object file formats,
// including interpreter scripts.
package binfmt

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"errors"
	"fmt"
	"io"
	"os"
)

// Format is an object file format.
type Format string

const (
	ELF   Format = "elf"
	MachO Format = "macho"
	PE    Format = "pe"

	// Script is a text file starting with a "#!" interpreter line. It can be
	// executed but not mapped.
	Script Format = "script"
)

// Object reports whether f can be mapped as a shared object.
func (f Format) Object() bool {
	return f == ELF || f == MachO || f == PE
}

// ErrUnknownFormat is returned for files that are not ELF, Mach-O, PE or
// interpreter scripts.
var ErrUnknownFormat = errors.New("unknown object file format")

// Detect reports the object file format of the file at path.
func Detect(path string) (Format, error) {
	if f, err := elf.Open(path); err == nil {
		f.Close()
		return ELF, nil
	} else if !isFormatError(err) {
		return "", err
	}

	if ok, err := shebang(path); err != nil {
		return "", err
	} else if ok {
		return Script, nil
	}

	if f, err := macho.Open(path); err == nil {
		f.Close()
		return MachO, nil
	}
	if f, err := macho.OpenFat(path); err == nil {
		f.Close()
		return MachO, nil
	}

	if f, err := pe.Open(path); err == nil {
		f.Close()
		return PE, nil
	}

	return "", fmt.Errorf("%s: %w", path, ErrUnknownFormat)
}

func shebang(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, 2)
	if _, err := io.ReadFull(f, head); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(head, []byte("#!")), nil
}

// isFormatError separates "not this format" from I/O failures such as a
// missing file, which the caller must see as-is.
func isFormatError(err error) bool {
	var fe *elf.FormatError
	return errors.As(err, &fe) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
