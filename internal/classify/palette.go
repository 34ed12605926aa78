package classify

var palette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#FF69B4", "#32CD32", "#9370DB", "#FFB347", "#1E90FF",
	"#FF4500", "#228B22", "#DC143C", "#00CED1", "#FF8C00", "#FFD700", "#20B2AA", "#8A2BE2",
	"#FF1493", "#00FF7F", "#FF6347", "#4169E1",
}

var icons = []string{
	"fas fa-tag", "fas fa-star", "fas fa-gift", "fas fa-shopping-bag", "fas fa-bolt",
	"fas fa-gem", "fas fa-fire", "fas fa-heart", "fas fa-crown", "fas fa-rocket",
}

type style struct {
	match string
	icon  string
	color string
}

// styles are checked in order against the lowercase category name.
var styles = []style{
	{"electronics", "fas fa-mobile-alt", "#4ECDC4"},
	{"fashion", "fas fa-tshirt", "#45B7D1"},
	{"home", "fas fa-home", "#FF6B6B"},
	{"beauty", "fas fa-heart", "#FF69B4"},
	{"sports", "fas fa-dumbbell", "#32CD32"},
	{"books", "fas fa-book", "#9370DB"},
	{"toys", "fas fa-gamepad", "#FFB347"},
	{"automotive", "fas fa-car", "#1E90FF"},
	{"travel", "fas fa-plane", "#FF4500"},
	{"pet", "fas fa-paw", "#228B22"},
	{"office", "fas fa-briefcase", "#DC143C"},
	{"financial", "fas fa-dollar-sign", "#FFD700"},
	{"insurance", "fas fa-shield-alt", "#20B2AA"},
	{"entertainment", "fas fa-film", "#FF1493"},
	{"cloud", "fas fa-cloud", "#00CED1"},
	{"security", "fas fa-lock", "#4169E1"},
	{"education", "fas fa-graduation-cap", "#9370DB"},
	{"food", "fas fa-utensils", "#FF6347"},
	{"ai ", "fas fa-robot", "#8A2BE2"},
	{"design", "fas fa-palette", "#FF8C00"},
	{"developer", "fas fa-code", "#00FF7F"},
	{"apps", "fas fa-mobile", "#1E90FF"},
}
