// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import "errors"

// ValidationError rejects bad client input. It maps to HTTP 400 and is
// never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ErrConnectionGone signals that a push target no longer exists at the
// transport level. It self-heals by deregistration and is never surfaced
// to any caller.
var ErrConnectionGone = errors.New("connection gone")
