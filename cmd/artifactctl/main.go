// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command artifactctl is the operator CLI of the artifact service.
//
//	artifactctl fingerprint <video-id> --language en --kind quiz
//	artifactctl request <video-id> --language en --kind summary
//
// fingerprint works offline. request builds the full stack from the
// configuration (GCP_CONFIG_PREFIX / GCP_RUNTIME) and runs one execution.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
