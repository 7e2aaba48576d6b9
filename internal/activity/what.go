package activity

// LegalWhat holds the legal values for the activity type. The first one is
// the default.
var LegalWhat = []string{
	"Cycling", "Running", "Mountain biking", "Indoor cycling", "Sailing", "Walking", "Hiking",
	"Swimming", "Driving", "Off road driving", "Motor racing", "Motorcycling", "Enduro",
	"Skiing", "Cross country skiing", "Canoeing", "Kayaking", "Sea kayaking", "Stand up paddle boarding",
	"Rowing", "Windsurfing", "Kiteboarding", "Orienteering", "Mountaineering", "Skating",
	"Skateboarding", "Horse riding", "Hang gliding", "Gliding", "Flying", "Snowboarding",
	"Paragliding", "Hot air ballooning", "Nordic walking", "Snowshoeing", "Jet skiing", "Powerboating",
	"Miscellaneous",
}

// DefaultWhat is the activity type of activities that never had one.
var DefaultWhat = LegalWhat[0]

// IsLegalWhat reports whether value is one of LegalWhat.
func IsLegalWhat(value string) bool {
	for _, w := range LegalWhat {
		if w == value {
			return true
		}
	}
	return false
}
