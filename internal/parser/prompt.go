package parser

import (
	"fmt"
	"strings"

	"pillbot/internal/dose"
)

// HistorySeparator joins the messages of one /addpill conversation.
const HistorySeparator = "\n---\n"

// Prompt builds the extraction instruction for the whole conversation.
func Prompt(today dose.Date, history []string) string {
	return fmt.Sprintf(`You are an expert at parsing medical prescriptions from a conversation.
Use the ENTIRE conversation history to produce a SINGLE, final JSON array.
Today's date is %s. Use this for relative dates.
The JSON structure for each object must be: {"name": "string", "start_date": "YYYY-MM-DD", "schedule": [{"duration_days": integer, "dosage": "string", "time": "HH:MM"}]}
- For "ongoing" durations, use %d for duration_days.
- If parsing is impossible, return an empty JSON array [].
- Return ONLY the JSON array.
Conversation History: --- %s ---`, today, dose.OpenEnded, strings.Join(history, HistorySeparator))
}
