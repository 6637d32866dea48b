package history

import (
	"encoding/json"
	"fmt"

	"github.com/alphagoones/smartbackup/pkg/util"
)

// Outcome classifies how a backup run ended.
type Outcome string

const (
	// Success means every selected file was copied and all post steps ran.
	Success Outcome = "success"
	// Partial means an artifact was produced but some files were skipped or
	// compression failed.
	Partial Outcome = "partial"
	// Failed means no usable artifact was produced.
	Failed Outcome = "failed"
)

var outcomeToString = map[Outcome]string{
	Success: "success",
	Partial: "partial",
	Failed:  "failed",
}

var stringToOutcome map[string]Outcome

func init() {
	// Inverting the map at runtime ensures outcomeToString is fully loaded
	stringToOutcome = util.InvertMap(outcomeToString)
}

func (o Outcome) String() string {
	if str, ok := outcomeToString[o]; ok {
		return str
	}
	return fmt.Sprintf("unknown_outcome(%s)", string(o))
}

func ParseOutcome(s string) (Outcome, error) {
	if o, ok := stringToOutcome[s]; ok {
		return o, nil
	}
	return "", fmt.Errorf("invalid outcome: %q. Must be 'success', 'partial', or 'failed'", s)
}

// MarshalJSON implements the json.Marshaler interface for Outcome.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Outcome.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("outcome should be a string, got %s", data)
	}
	outcome, err := ParseOutcome(s)
	if err != nil {
		return err
	}
	*o = outcome
	return nil
}

// ExitCode maps the outcome to the process exit code of the backup command.
func (o Outcome) ExitCode() int {
	switch o {
	case Success:
		return 0
	case Partial:
		return 2
	default:
		return 1
	}
}
