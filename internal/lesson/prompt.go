package lesson

import "strings"

const promptInstructions = `You are an AI specialized in creating ADHD-friendly lessons.
Generate a detailed and engaging lesson in JSON format from the provided text.
Keep all of the information and details in the input text, but break it into smaller chunks so that it is easier for students with ADHD to retain the information. Include as many quiz steps as possible, and each quiz step must contain exactly 3 questions. Quiz questions must be answerable from the content of the lesson steps. Generate as many steps as the input text allows.
Only output valid JSON with no extra text. Do not add labels like "step" or "quiz number" to titles.

Use this format:
{
  "lessonTitle": "Title of the lesson",
  "lessonOverview": "Brief overview",
  "steps": [
    {
      "type": "content",
      "title": "Step title",
      "content": "Detailed step content"
    },
    {
      "type": "quiz",
      "quizTitle": "Some quiz label",
      "questions": [
        {
          "question": "Quiz question #1",
          "options": ["Option 1", "Option 2", "Option 3"],
          "correctAnswer": "Option 1"
        },
        {
          "question": "Quiz question #2",
          "options": ["Option A", "Option B", "Option C"],
          "correctAnswer": "Option C"
        },
        {
          "question": "Quiz question #3",
          "options": ["True", "False"],
          "correctAnswer": "True"
        }
      ]
    }
  ]
}

Text: `

// Prompt returns the generation instruction with text appended verbatim.
func Prompt(text string) string {
	var b strings.Builder
	b.Grow(len(promptInstructions) + len(text) + 1)
	b.WriteString(promptInstructions)
	b.WriteString(text)
	b.WriteByte('\n')
	return b.String()
}
