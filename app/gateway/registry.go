package gateway

import "github.com/vibast-solutions/ms-go-billing/app/entity"

type Registry struct {
	adapters map[entity.Gateway]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	items := make(map[entity.Gateway]Adapter, len(adapters))
	for _, a := range adapters {
		items[a.Code()] = a
	}
	return &Registry{adapters: items}
}

func (r *Registry) Get(code entity.Gateway) (Adapter, error) {
	adapter, ok := r.adapters[code]
	if !ok {
		return nil, ErrGatewayNotSupported
	}
	return adapter, nil
}
