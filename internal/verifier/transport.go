// Copyright 2026 Dominik Schlosser
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

package verifier

import (
	"context"
	"fmt"
)

// LocalTransport delivers holder messages to an in-process reader session.
type LocalTransport struct {
	Session *Session
}

// Post hands body to the session if url is its session URL.
func (t LocalTransport) Post(ctx context.Context, url string, body []byte) ([]byte, error) {
	if url != t.Session.SessionURL() {
		return nil, fmt.Errorf("no reader session at %s", url)
	}
	return t.Session.HandleMessage(ctx, body)
}
