/*
 * Copyright (c) 2018. LuCongyao <6congyao@gmail.com> .
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this work except in compliance with the License.
 * You may obtain a copy of the License in the LICENSE file, or at:
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import "context"

// ContextKey type
type ContextKey string

// Context key types
const (
	ContextKeyConnectionID ContextKey = "ConnectionId"
	ContextKeyListenerPort ContextKey = "ListenerPort"
	ContextKeyListenerName ContextKey = "ListenerName"
)

// ListenerName returns the name of the listener which accepted the
// connection of ctx.
func ListenerName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(ContextKeyListenerName).(string)
	return name
}

// ConnectionID returns the id of the connection of ctx, 0 when unset.
func ConnectionID(ctx context.Context) uint64 {
	if ctx == nil {
		return 0
	}
	id, _ := ctx.Value(ContextKeyConnectionID).(uint64)
	return id
}
