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

package cloud

// Default prompt templates. They are executed with text/template against the
// parameters built by GenerationGateway.promptParams: LANGUAGE, TITLE,
// CHANNEL, QUESTION_COUNT, OPTION_COUNT and EXAMPLE_JSON.
const (
	DefaultSummaryPrompt = `You are given a video titled "{{.TITLE}}" from the channel "{{.CHANNEL}}".
Watch the whole video and write a faithful summary of what is said and shown.
Write the summary and the key points in the language with ISO 639-1 code "{{.LANGUAGE}}".
Do not invent facts that are not in the video.
Respond with JSON only, shaped exactly like this example:
{{.EXAMPLE_JSON}}`

	DefaultQuizPrompt = `You are given a video titled "{{.TITLE}}" from the channel "{{.CHANNEL}}".
Write a multiple choice quiz that checks whether a viewer understood the video.
The quiz must have exactly {{.QUESTION_COUNT}} questions. Every question must have exactly {{.OPTION_COUNT}} options,
exactly one of which is correct. correct_option_index is the zero based index of the correct option.
Give a one sentence explanation for each answer.
Write questions, options and explanations in the language with ISO 639-1 code "{{.LANGUAGE}}".
Respond with JSON only, shaped exactly like this example:
{{.EXAMPLE_JSON}}`
)
