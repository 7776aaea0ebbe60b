// Copyright (c) 2026 John Earle
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

package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Sign computes the X-Line-Signature value for a request body: the
// base64-encoded HMAC-SHA256 of the raw body keyed by the channel secret.
func Sign(channelSecret, body []byte) string {
	mac := hmac.New(sha256.New, channelSecret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateSignature reports whether signature matches the expected
// HMAC for body. Comparison is constant-time.
func ValidateSignature(channelSecret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(channelSecret, body)), []byte(signature))
}
