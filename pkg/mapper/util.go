/*
 * Copyright 2026 Bufmap Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package mapper

import (
	"os"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CanCreateOnDevShm reports whether /dev/shm has room for size more
// bytes. Paths outside /dev/shm, and platforms without it, always pass.
func CanCreateOnDevShm(size uint64, path string) bool {
	if runtime.GOOS == "linux" && strings.HasPrefix(path, "/dev/shm") {
		stat, err := disk.Usage("/dev/shm")
		if err != nil {
			internalLogger.warnf("disk usage of /dev/shm: %v", err)
			return true
		}
		return stat.Free >= size
	}
	return true
}

// AlignUp rounds v up to the next multiple of align; align must be a
// power of two.
func AlignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
