package properties

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"cirrus/cirrus"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const GlobalPrefix = "global"

var (
	ErrPropertyNoSet = errors.New("property is required, but not set")
	ErrPropertyIsNil = errors.New("property and property default is nil")
)

type properties struct {
	*viper.Viper
	runtime *viper.Viper
}

func (p *properties) Sub(key string) cirrus.Properties {
	sub := p.Viper.Sub(key)
	if sub == nil {
		return nil
	}
	return &properties{Viper: sub, runtime: p.runtime}
}

func (p *properties) PrefixKeys(prefix string) []string {
	all := p.Viper.GetStringMap(prefix)
	keys := make([]string, 0, len(all))
	for key := range all {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (p *properties) Global() cirrus.Properties {
	return &properties{Viper: p.runtime, runtime: p.runtime}
}

func (p *properties) GetStringSlice(property cirrus.Property) []string {
	return p.Viper.GetStringSlice(property.Name())
}

func (p *properties) GetString(property cirrus.Property) string {
	return p.Viper.GetString(property.Name())
}

func (p *properties) GetInt(property cirrus.Property) int {
	return p.Viper.GetInt(property.Name())
}

func (p *properties) GetUint64(property cirrus.Property) uint64 {
	return p.Viper.GetUint64(property.Name())
}

func (p *properties) GetDuration(property cirrus.Property) time.Duration {
	return p.Viper.GetDuration(property.Name())
}

func (p *properties) GetBool(property cirrus.Property) bool {
	return p.Viper.GetBool(property.Name())
}

// InitAndRender applies defaults, checks required properties and renders the
// resolved values as a table.
func InitAndRender(p cirrus.Properties, def cirrus.PropertiesDef) (string, error) {
	_p, ok := p.(*properties)
	if !ok {
		return "", nil
	}
	buffer := &bytes.Buffer{}
	tWriter := tablewriter.NewWriter(buffer)
	tWriter.SetHeader([]string{"name", "type", "value"})
	tWriter.SetAutoFormatHeaders(false)
	tWriter.SetAutoWrapText(false)

	for _, _property := range def {
		if _property.Required() {
			if !_p.Viper.IsSet(_property.Name()) {
				return "", errors.WithMessage(ErrPropertyNoSet, _property.Name())
			}
		} else {
			if _property.Default() == nil && !_p.Viper.IsSet(_property.Name()) {
				return "", errors.WithMessage(ErrPropertyIsNil, _property.Name())
			}
			_p.Viper.SetDefault(_property.Name(), _property.Default())
		}
		tWriter.Append([]string{
			_property.Name(),
			_property.Type(),
			abbreviate(fmt.Sprintf("%+v", _p.Viper.Get(_property.Name()))),
		})
	}
	tWriter.Render()
	return buffer.String(), nil
}

// marshaled contexts are long, keep tables readable
func abbreviate(s string) string {
	if len(s) > 64 {
		return s[:61] + "..."
	}
	return s
}

func RenderDef(p cirrus.PropertiesDef) string {
	buffer := &bytes.Buffer{}
	tWriter := tablewriter.NewWriter(buffer)
	tWriter.SetHeader([]string{"name", "description", "required", "type", "default"})
	tWriter.SetAutoFormatHeaders(false)
	tWriter.SetAutoWrapText(false)
	for _, p := range p {
		tWriter.Append([]string{
			p.Name(),
			p.Description(),
			strconv.FormatBool(p.Required()),
			p.Type(),
			fmt.Sprintf("%+v", p.Default()),
		})
	}
	tWriter.Render()
	return buffer.String()
}

func wrap(v *viper.Viper) cirrus.Properties {
	runtime := v.Sub(GlobalPrefix)
	if runtime == nil {
		runtime = viper.New()
	}
	return &properties{Viper: v, runtime: runtime}
}

// New reads propertiesName from the first matching path.
func New(propertiesName string, propertiesType string, propertiesPath ...string) (cirrus.Properties, error) {
	v := viper.New()
	v.SetConfigName(propertiesName)
	v.SetConfigType(propertiesType)
	for _, p := range propertiesPath {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.WithMessage(err, "read config error")
	}
	return wrap(v), nil
}

// Read parses properties from r.
func Read(propertiesType string, r io.Reader) (cirrus.Properties, error) {
	v := viper.New()
	v.SetConfigType(propertiesType)
	if err := v.ReadConfig(r); err != nil {
		return nil, errors.WithMessage(err, "read config error")
	}
	return wrap(v), nil
}
