package common

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// PrettyPrint writes v to stdout as indented JSON.
func PrettyPrint(v interface{}) {
	s, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("could not encode output")
	}
	fmt.Println(string(s))
}

// WriteJSON writes v to path as indented JSON.
func WriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode %s: %w", path, err)
	}
	err = os.WriteFile(path, data, 0o644)
	if err != nil {
		return fmt.Errorf("could not write %s: %w", path, err)
	}
	return nil
}

// ReadJSON decodes the JSON file at path into v.
func ReadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read %s: %w", path, err)
	}
	err = json.Unmarshal(data, v)
	if err != nil {
		return fmt.Errorf("could not decode %s: %w", path, err)
	}
	return nil
}

// Output formats of the proof commands.
const (
	FormatJSON   = "json"
	FormatBinary = "binary"
)

// CheckFormat rejects output formats other than json and binary.
func CheckFormat(format string) error {
	switch format {
	case FormatJSON, FormatBinary:
		return nil
	default:
		return fmt.Errorf("unknown format %q, expected %s or %s", format, FormatJSON, FormatBinary)
	}
}
