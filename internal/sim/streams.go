package sim

import (
	"sync"

	"github.com/iti/rngstream"
)

var (
	streamsMu sync.Mutex
	streams   = make(map[string]*rngstream.RngStream)
)

// stream returns a private copy of the named random stream, rewound to its
// start. Equal names replay equal sequences for the life of the process,
// so a scenario's seed goes into the names it asks for.
func stream(name string) *rngstream.RngStream {
	streamsMu.Lock()
	defer streamsMu.Unlock()
	proto, ok := streams[name]
	if !ok {
		proto = rngstream.New(name)
		streams[name] = proto
	}
	s := *proto
	s.ResetStartStream()
	return &s
}
