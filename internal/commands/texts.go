package commands

const (
	txtStart           = "Hi %s! I'm your pill tracker.\n\nTell me about a prescription with /addpill and I'll remind you when each dose is due. Use /todaypills to see today's plan and /logpill to log a dose."
	txtAddInitial      = "Please describe your medication: name, dosage, times and how long to take it. You can send several pills at once."
	txtAnalyzing       = "Analyzing your text..."
	txtParseEmpty      = "Sorry, I couldn't find a schedule in that. Please try /addpill again with more detail."
	txtConfirm         = "Here is what I understood:\n\n%s\nIs this correct?"
	txtCorrection      = "No problem. Tell me what to change and I'll read the whole conversation again."
	txtSaved           = "✅ Saved: %s"
	txtSaveEmpty       = "There was nothing to save. Please start again with /addpill."
	txtAlreadyExists   = "⚠️ Already exists, not saved: %s. Remove it with /deletepill first to replace it."
	txtChooseYesNo     = "Please answer Yes, No or Cancel."
	txtCancelled       = "Action cancelled."
	txtNothingToCancel = "There is nothing to cancel."
	txtGenericError    = "Sorry, an error occurred. Please try again."

	txtNoneShow     = "You don't have any medications or reminders yet. Add one with /addpill."
	txtShowHeader   = "💊 Your medications"
	txtNoneToday    = "Nothing is scheduled for today."
	txtTodayHeader  = "🗓 Today's pills"
	txtUpdateFailed = "Sorry, something went wrong while updating."

	txtAllLogged     = "Looks like everything for today is already logged!"
	txtLogPrompt     = "Which pending pill would you like to log as taken?"
	txtLogged        = "✅ Logged '%s' as taken!"
	txtAlreadyLogged = "'%s' was already logged for that time."
	txtLogUnknown    = "I don't see '%s' in today's pending pills."

	txtNoneDelete    = "You don't have any medications to delete."
	txtDeletePrompt  = "Which medication would you like to remove?"
	txtDeleted       = "🗑 Removed '%s'."
	txtDeleteMissing = "I couldn't find a medication with that name."

	txtExpired = "That button has expired. Use /todaypills to log it."
)

const (
	btnYes    = "Yes"
	btnNo     = "No"
	btnCancel = "Cancel"
)
