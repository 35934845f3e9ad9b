package service

import (
	"fmt"
	"log/slog"

	"github.com/lixenwraith/tickgate/dispatch"
	"github.com/lixenwraith/tickgate/status"
)

// Host is what the engine passes to Service.Init
// Services type-assert the Init argument and keep the pieces they need
type Host interface {
	Dispatch() *dispatch.Registry
	Status() *status.Registry
	Logger() *slog.Logger
}

// AsHost asserts the Init argument, naming the service on failure
func AsHost(name string, host any) (Host, error) {
	h, ok := host.(Host)
	if !ok {
		return nil, fmt.Errorf("service %s: host %T does not provide dispatch", name, host)
	}
	return h, nil
}
