// Copyright 2026 The Voltrans Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package upcall

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// broadcast fans ev out to every target concurrently, each send bounded
// by ctx so one unresponsive client cannot hold the others up
// indefinitely.
func broadcast(ctx context.Context, targets []*client, ev Event) {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range targets {
		c := c
		g.Go(func() error {
			if c.notify == nil {
				return nil
			}
			select {
			case c.notify <- ev:
			case <-ctx.Done():
			}
			return nil
		})
	}
	_ = g.Wait()
}
