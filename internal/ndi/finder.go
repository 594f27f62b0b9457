//go:build ndi

package ndi

/*
#include "ndi_sdk.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"time"
	"unsafe"
)

type finder struct {
	instance C.NDIlib_find_instance_t
}

func newFinder() (*finder, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}

	var settings C.NDIlib_find_create_t
	settings.show_local_sources = C.bool(true)

	instance := C.NDIlib_find_create_v2(&settings)
	if instance == nil {
		return nil, errors.New("failed to create NDI finder")
	}
	return &finder{instance: instance}, nil
}

func (f *finder) destroy() {
	if f.instance != nil {
		C.NDIlib_find_destroy(f.instance)
		f.instance = nil
	}
}

func (f *finder) waitForSources(timeout time.Duration) []Source {
	C.NDIlib_find_wait_for_sources(f.instance, C.uint32_t(timeout.Milliseconds()))

	var n C.uint32_t
	cSources := C.NDIlib_find_get_current_sources(f.instance, &n)
	if n == 0 || cSources == nil {
		return nil
	}

	sources := make([]Source, int(n))
	for i, cs := range unsafe.Slice(cSources, int(n)) {
		sources[i] = Source{
			Name:    C.GoString(cs.p_ndi_name),
			Address: C.GoString(cs.p_url_address),
		}
	}
	return sources
}

func (f *finder) findByName(name string, timeout time.Duration) (Source, error) {
	for _, src := range f.waitForSources(timeout) {
		if src.Name == name {
			return src, nil
		}
	}
	return Source{}, fmt.Errorf("NDI source not found: %s", name)
}
