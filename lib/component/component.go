package component

import (
	"cirrus/cirrus"
)

var (
	sinkMap   = map[string]cirrus.NewSinkFunc{}
	sourceMap = map[string]cirrus.NewSourceFunc{}
)

func RegisterNewSinkFunc(_type string, sinkFunc cirrus.NewSinkFunc) {
	sinkMap[_type] = sinkFunc
}

func RegisterNewSourceFunc(_type string, sourceFunc cirrus.NewSourceFunc) {
	sourceMap[_type] = sourceFunc
}

// NewSourceFunc returns nil for unregistered types.
func NewSourceFunc(_type string) cirrus.NewSourceFunc {
	return sourceMap[_type]
}

func NewSinkFunc(_type string) cirrus.NewSinkFunc {
	return sinkMap[_type]
}

func ListSourceDef() map[string]cirrus.PropertiesDef {
	sourceDefMap := map[string]cirrus.PropertiesDef{}
	for name, sourceFunc := range sourceMap {
		sourceDefMap[name] = sourceFunc().PropertiesDef()
	}
	return sourceDefMap
}

func ListSinkDef() map[string]cirrus.PropertiesDef {
	sinkDefMap := map[string]cirrus.PropertiesDef{}
	for name, sinkFunc := range sinkMap {
		sinkDefMap[name] = sinkFunc().PropertiesDef()
	}
	return sinkDefMap
}
