// Copyright 2023 StreamNative, Inc.
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

package allocate

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamnative/numpool/allocator"
)

func TestAllocateCmd(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "pool.yaml")
	require.NoError(t, os.WriteFile(name, []byte(`
shards:
  - id: shard-0
    storage: pebble://shard-0
    range: {start: 1, end: 3}
  - id: shard-1
    storage: pebble://shard-1
    range: {start: 4, end: 5}
`), 0o600))

	run := func(args ...string) (string, error) {
		config = NewConfig()
		out := &bytes.Buffer{}
		Cmd.SetOut(out)
		Cmd.SetArgs(append([]string{"-f", name, "--data-dir", dir}, args...))
		err := Cmd.Execute()
		return out.String(), err
	}

	out, err := run("-n", "3")
	require.NoError(t, err)
	first := strings.Fields(out)
	assert.Len(t, first, 3)

	// The claims survive across runs on the same data dir
	out, err = run("--count=2")
	require.NoError(t, err)
	second := strings.Fields(out)
	assert.Len(t, second, 2)

	var all []int64
	for _, s := range append(first, second...) {
		n, err := strconv.ParseInt(s, 10, 64)
		require.NoError(t, err)
		all = append(all, n)
	}
	assert.ElementsMatch(t, []int64{1, 2, 3, 4, 5}, all)

	_, err = run()
	assert.ErrorIs(t, err, allocator.ErrPoolExhausted)

	_, err = run("-n", "0")
	assert.Error(t, err)
}
