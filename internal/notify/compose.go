package notify

import "fmt"

const (
	picksheetURL = "https://www.pigeonpool.com/picksheet"
	outcomesURL  = "https://www.pigeonpool.com/mnf-outcomes"
	picksURL     = "https://www.pigeonpool.com/picks"

	signoff = "--Andy (not really, as this email is automated from the pigeonpool app)"
)

// InterimResults is the Sunday-night summary sent to all players once
// every Sunday game is final.
func InterimResults(week int32) Message {
	return Message{
		Subject: fmt.Sprintf("Interim Results for week %d", week),
		Text: fmt.Sprintf(
			"To ALL Pigeons --\n\n"+
				"The Week %d Interim Results through Sunday are available at %s.\n"+
				"Outcomes for various MNF scores are available at %s.\n\n"+
				signoff,
			week, picksheetURL, outcomesURL,
		),
		HTML: fmt.Sprintf(
			"<p>To <b>ALL Pigeons</b> --</p>"+
				"<p>The Week %d Interim Results through Sunday are available at "+
				"<a href='%s'>%s</a>.</p>"+
				"<p>Outcomes for various MNF scores are available at "+
				"<a href='%s'>%s</a>.</p>"+
				"<p>%s</p>",
			week, picksheetURL, picksheetURL, outcomesURL, outcomesURL, signoff,
		),
	}
}

// FinalResults is the Monday-night wrap sent to all players once the
// whole week is final.
func FinalResults(week int32) Message {
	return Message{
		Subject: fmt.Sprintf("Week %d Results", week),
		Text: fmt.Sprintf(
			"To ALL Pigeons --\n\n"+
				"The final Week %d results are available at %s.\n"+
				"The year-to-date cumulative scores are available at %s.\n\n"+
				"Don't forget to enter your picks for next week before the Tuesday midnight deadline at %s!\n\n"+
				signoff,
			week, picksheetURL, outcomesURL, picksURL,
		),
		HTML: fmt.Sprintf(
			"<p>To <b>ALL Pigeons</b> --</p>"+
				"<p>The final Week %d results are available at <a href='%s'>%s</a>.</p>"+
				"<p>The year-to-date cumulative scores are available at <a href='%s'>%s</a>.</p>"+
				"<p>Don't forget to enter your picks for next week before the Tuesday midnight deadline at "+
				"<a href='%s'>%s</a>!</p>"+
				"<p>%s</p>",
			week, picksheetURL, picksheetURL, outcomesURL, outcomesURL, picksURL, picksURL, signoff,
		),
	}
}

// PickReminder is the Tuesday warning sent only to players who still
// owe picks for the upcoming week.
func PickReminder() Message {
	return Message{
		Subject: "Pigeon Pool Reminder: Enter Your Picks",
		Text: "Hi! It looks like you haven't submitted all your picks for this week.\n" +
			"Please log in and enter them before tonight's deadline.\n\n" +
			"Good luck!",
		HTML: "<h2>Friendly Reminder</h2>" +
			"<p>It looks like you haven't submitted all your picks for this week.</p>" +
			"<p>Please log in and enter them before tonight's deadline.</p>" +
			"<p>Good luck!</p>",
	}
}
