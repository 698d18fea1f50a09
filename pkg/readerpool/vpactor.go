/*
Copyright 2026 The Modvault Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package readerpool

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"modvault.dev/modvault/pkg/vpfile"
)

// vpReadRequest asks a vpReadActor to stream one inner entry's bytes.
// exit == true marks the internal Exit control message.
type vpReadRequest struct {
	inner string
	sink  chan<- Chunk
	exit  bool
}

// vpReadActor owns one open VP file handle plus its flattened
// path->(offset,size) index, and serializes seeks/reads against it so
// concurrent requests for the same VP do not interleave (spec.md §4.5).
// It self-terminates after IdleTimeout without a request, or immediately
// on an Exit control message, releasing the handle either way.
type vpReadActor struct {
	path       string
	inbox      chan vpReadRequest
	closedFlag int32
	onExit     func(*vpReadActor)
}

func newVPReadActor(path string, onExit func(*vpReadActor)) (*vpReadActor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("readerpool: open VP %s: %w", path, err)
	}
	tree, err := vpfile.Index(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("readerpool: index VP %s: %w", path, err)
	}

	a := &vpReadActor{
		path:   path,
		inbox:  make(chan vpReadRequest, 1),
		onExit: onExit,
	}
	go a.run(f, tree)
	return a, nil
}

func (a *vpReadActor) closed() bool { return atomic.LoadInt32(&a.closedFlag) != 0 }

func (a *vpReadActor) submit(req vpReadRequest) {
	if a.closed() {
		deliverErr(req.sink, fmt.Errorf("readerpool: VP actor for %s already closed", a.path))
		return
	}
	a.inbox <- req
}

// Exit asks the actor to terminate cleanly after finishing any request it
// is currently processing.
func (a *vpReadActor) Exit() {
	a.inbox <- vpReadRequest{exit: true}
}

func (a *vpReadActor) run(f *os.File, tree *vpfile.Tree) {
	defer func() {
		atomic.StoreInt32(&a.closedFlag, 1)
		f.Close()
		if a.onExit != nil {
			a.onExit(a)
		}
	}()

	timer := time.NewTimer(IdleTimeout)
	defer timer.Stop()

	for {
		select {
		case req := <-a.inbox:
			if req.exit {
				return
			}
			a.handle(f, tree, req)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(IdleTimeout)
		case <-timer.C:
			return
		}
	}
}

func (a *vpReadActor) handle(f *os.File, tree *vpfile.Tree, req vpReadRequest) {
	offset, size, err := tree.Locate(req.inner)
	if err != nil {
		deliverErr(req.sink, fmt.Errorf("readerpool: locate %s in %s: %w", req.inner, a.path, err))
		return
	}
	raw, err := vpfile.ReadEntry(f, offset, size)
	if err != nil {
		deliverErr(req.sink, fmt.Errorf("readerpool: read %s in %s: %w", req.inner, a.path, err))
		return
	}
	data, err := vpfile.MaybeDecompress(raw)
	if err != nil {
		deliverErr(req.sink, fmt.Errorf("readerpool: decompress %s in %s: %w", req.inner, a.path, err))
		return
	}
	defer close(req.sink)
	for off := 0; off < len(data); off += ChunkSize {
		end := off + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := make([]byte, end-off)
		copy(chunk, data[off:end])
		req.sink <- Chunk{Data: chunk}
	}
}
