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

// Package models defines the data structures shared across the relay service.
package models

// ClassificationRecord is the persisted artifact for one classification.
//
// This struct's JSON serialisation defines the on-disk result file format
// (analysis_results/plastic_result_<timestamp>.json). Field names are part
// of the contract consumed by downstream tooling — do not rename them.
type ClassificationRecord struct {
	Timestamp   string `json:"timestamp"`
	ImagePath   string `json:"image_path"`
	PlasticCode string `json:"plastic_code"`
}

// ClassificationEvent is the message published to Redis after a
// classification record has been written. It carries everything a
// downstream consumer needs without re-reading the result file.
type ClassificationEvent struct {
	EventID     string `json:"event_id"`
	MessageID   string `json:"message_id"`
	ImagePath   string `json:"image_path"`
	ResultPath  string `json:"result_path"`
	PlasticCode string `json:"plastic_code"`
	Timestamp   string `json:"timestamp"`
}
