package execution

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

var ErrInvalidCloudFunction = errors.New("invalid cloud function")

type FunctionKind int

const (
	// None is a terminal stage.
	None FunctionKind = iota
	// SoloKind invokes exactly one named function.
	SoloKind
	// ChorusKind invokes one of GroupSize functions sharing a name prefix.
	ChorusKind
)

func (k FunctionKind) String() string {
	switch k {
	case SoloKind:
		return "solo"
	case ChorusKind:
		return "chorus"
	default:
		return "none"
	}
}

// CloudFunction is the routing decision for the next invocation. The zero
// value is None.
type CloudFunction struct {
	Kind      FunctionKind
	Name      string
	GroupSize int
}

func Solo(name string) CloudFunction {
	return CloudFunction{Kind: SoloKind, Name: name}
}

func Chorus(prefix string, size int) CloudFunction {
	return CloudFunction{Kind: ChorusKind, Name: prefix, GroupSize: size}
}

func (c CloudFunction) IsNone() bool {
	return c.Kind == None
}

// Targets lists the function names c may dispatch to.
func (c CloudFunction) Targets() []string {
	switch c.Kind {
	case SoloKind:
		return []string{c.Name}
	case ChorusKind:
		out := make([]string, 0, c.GroupSize)
		for i := 0; i < c.GroupSize; i++ {
			out = append(out, MemberName(c.Name, i))
		}
		return out
	default:
		return nil
	}
}

// MemberName is the name of the i-th function of a chorus group.
func MemberName(prefix string, i int) string {
	return fmt.Sprintf("%s-%d", prefix, i)
}

func (c CloudFunction) String() string {
	switch c.Kind {
	case SoloKind:
		return fmt.Sprintf("solo(%s)", c.Name)
	case ChorusKind:
		return fmt.Sprintf("chorus(%s, %d)", c.Name, c.GroupSize)
	default:
		return "none"
	}
}

type chorusJSON struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

type cloudFunctionJSON struct {
	Solo   *string     `json:"solo,omitempty"`
	Chorus *chorusJSON `json:"chorus,omitempty"`
}

func (c CloudFunction) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case SoloKind:
		return json.Marshal(cloudFunctionJSON{Solo: &c.Name})
	case ChorusKind:
		return json.Marshal(cloudFunctionJSON{Chorus: &chorusJSON{Name: c.Name, Size: c.GroupSize}})
	default:
		return []byte(`"none"`), nil
	}
}

func (c *CloudFunction) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte(`"none"`)) || bytes.Equal(b, []byte(`null`)) {
		*c = CloudFunction{}
		return nil
	}
	v := cloudFunctionJSON{}
	if err := json.Unmarshal(b, &v); err != nil {
		return errors.Wrap(ErrInvalidCloudFunction, err.Error())
	}
	switch {
	case v.Solo != nil && v.Chorus == nil:
		*c = Solo(*v.Solo)
	case v.Chorus != nil && v.Solo == nil:
		if v.Chorus.Size <= 0 {
			return errors.WithMessagef(ErrInvalidCloudFunction, "chorus size %d", v.Chorus.Size)
		}
		*c = Chorus(v.Chorus.Name, v.Chorus.Size)
	default:
		return errors.WithMessagef(ErrInvalidCloudFunction, "%s", b)
	}
	return nil
}
