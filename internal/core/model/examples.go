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

// Package model defines the core data structures shared by every layer of the
// artifact pipeline. This file provides example artifacts that are rendered
// into generation prompts as one-shot examples, showing the model the exact
// JSON shape it is expected to return.
package model

// GetExampleSummary returns a sample summary used in the summary prompt.
func GetExampleSummary() *SummaryArtifact {
	return &SummaryArtifact{
		Summary: "The speaker walks through how a sourdough starter is created from flour and water, " +
			"how to keep it healthy with regular feedings, and how to tell when it is ready to bake with.",
		KeyPoints: []string{
			"A starter is a culture of wild yeast and lactic acid bacteria.",
			"Feed the starter equal weights of flour and water every 12 to 24 hours.",
			"A ready starter roughly doubles in size within 4 to 8 hours of feeding.",
		},
	}
}

// GetExampleQuiz returns a sample, structurally valid quiz used in the quiz
// prompt.
func GetExampleQuiz() *QuizArtifact {
	return &QuizArtifact{
		VideoID:  "dQw4w9WgXcQ",
		Language: "en",
		Questions: []*QuizQuestion{
			{
				Ordinal:            1,
				QuestionText:       "What two ingredients are used to create a starter?",
				AnswerOptions:      []string{"Flour and water", "Yeast and sugar", "Milk and flour", "Salt and water"},
				CorrectOptionIndex: 0,
				ExplanationText:    "The video explains that a starter only needs flour and water.",
			},
			{
				Ordinal:            2,
				QuestionText:       "How often should the starter be fed?",
				AnswerOptions:      []string{"Once a week", "Every 12 to 24 hours", "Every hour", "Only before baking"},
				CorrectOptionIndex: 1,
				ExplanationText:    "Regular feedings every 12 to 24 hours keep the culture active.",
			},
			{
				Ordinal:            3,
				QuestionText:       "What lives in a sourdough starter?",
				AnswerOptions:      []string{"Only commercial yeast", "Mold", "Wild yeast and lactic acid bacteria", "Nothing"},
				CorrectOptionIndex: 2,
				ExplanationText:    "The culture is a mix of wild yeast and lactic acid bacteria.",
			},
			{
				Ordinal:            4,
				QuestionText:       "What is a sign that the starter is ready?",
				AnswerOptions:      []string{"It turns blue", "It shrinks", "It smells of nothing", "It roughly doubles in size"},
				CorrectOptionIndex: 3,
				ExplanationText:    "A ready starter doubles within a few hours of feeding.",
			},
			{
				Ordinal:            5,
				QuestionText:       "In what ratio are flour and water fed by weight?",
				AnswerOptions:      []string{"Equal weights", "Two parts water", "Three parts flour", "Water only"},
				CorrectOptionIndex: 0,
				ExplanationText:    "The video uses equal weights of flour and water.",
			},
		},
	}
}
