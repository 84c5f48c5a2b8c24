// Copyright (c) 2016-2019 Uber Technologies, Inc.
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
package core

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandomPeerIDFormat(t *testing.T) {
	require := require.New(t)

	p := RandomPeerID()
	require.Len(p.Bytes(), 20)
	require.Regexp(regexp.MustCompile(`^SA[a-z0-9]{18}$`), p.String())
}

func TestNewPeerIDLength(t *testing.T) {
	require := require.New(t)

	_, err := NewPeerID("too short")
	require.Equal(ErrInvalidPeerIDLength, err)

	p, err := NewPeerID("SAabcdefghijklmnopqr")
	require.NoError(err)
	require.Equal("SAabcdefghijklmnopqr", p.String())
}
