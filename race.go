// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package reactor

// RaceEnabled is true when the race detector is active.
// Used by tests to skip multi-producer ring stress tests, which the
// detector flags because slot fields are ordered by sequence numbers
// rather than by locks.
const RaceEnabled = true
