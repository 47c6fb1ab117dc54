package context

import (
	_c "context"
	"strings"
	"sync"

	"cirrus/cirrus"
)

type context struct {
	ctx    _c.Context
	v      cirrus.Properties
	cancel _c.CancelFunc
	kv     *sync.Map
	name   string
}

func (c *context) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *context) Cancel() {
	c.cancel()
}

func (c *context) Ctx() _c.Context {
	return c.ctx
}

func (c *context) Name() string {
	return c.name
}

// Named derives a child context whose properties are the value subtree. The
// key value storage is shared with the parent.
func (c *context) Named(value string) cirrus.Context {
	ctx, cancel := _c.WithCancel(c.ctx)
	name := value
	if c.name != "" {
		name = strings.Join([]string{c.name, value}, ".")
	}
	var v cirrus.Properties
	if c.v != nil {
		v = c.v.Sub(value)
	}
	return &context{v: v, ctx: ctx, cancel: cancel, kv: c.kv, name: name}
}

func (c *context) Properties() cirrus.Properties {
	return c.v
}

func (c *context) Store(key string, value interface{}) {
	c.kv.Store(key, value)
}

func (c *context) Load(key string) (interface{}, bool) {
	return c.kv.Load(key)
}

func New(ctx _c.Context, properties cirrus.Properties) cirrus.Context {
	parent, cancelFunc := _c.WithCancel(ctx)
	return &context{ctx: parent, v: properties, cancel: cancelFunc, kv: &sync.Map{}, name: ""}
}
