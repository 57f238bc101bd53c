// Package registry keeps the list of audio backends compiled into the binary.
//
// Backends register themselves from their init() functions; callers
// get the factories ordered by priority (highest first).
package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

type factoryWithPriority[F any] struct {
	Priority int
	Factory  F
}

type factoryRegistry[F any] struct {
	locker    sync.Mutex
	factories map[reflect.Type]factoryWithPriority[F]
}

func (r *factoryRegistry[F]) register(
	kind string,
	priority int,
	factory F,
) {
	t := reflect.ValueOf(factory).Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	r.locker.Lock()
	defer r.locker.Unlock()
	if r.factories == nil {
		r.factories = map[reflect.Type]factoryWithPriority[F]{}
	}
	if _, ok := r.factories[t]; ok {
		panic(fmt.Errorf("there is already registered a factory of %s of type %v", kind, t))
	}
	r.factories[t] = factoryWithPriority[F]{
		Priority: priority,
		Factory:  factory,
	}
}

func (r *factoryRegistry[F]) list() []F {
	r.locker.Lock()
	var withPriorities []factoryWithPriority[F]
	for _, factory := range r.factories {
		withPriorities = append(withPriorities, factory)
	}
	r.locker.Unlock()

	sort.SliceStable(withPriorities, func(i, j int) bool {
		return withPriorities[i].Priority > withPriorities[j].Priority
	})

	result := make([]F, 0, len(withPriorities))
	for _, factory := range withPriorities {
		result = append(result, factory.Factory)
	}
	return result
}
