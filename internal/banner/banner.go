package banner

import (
	"github.com/charmbracelet/lipgloss"
)

// GetString renders the startup banner.
func GetString() string {
	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("213")).
		Bold(true)

	ascii := `
   _____                      ___
  / ___/      ______ _____  / (_)___  ____ _
  \__ \ | /| / / __ '/ __ \/ / / __ \/ __ '/
 ___/ / |/ |/ / /_/ / / / / / / / / / /_/ /
/____/|__/|__/\__,_/_/ /_/_/_/_/ /_/\__, /
                                   /____/   `

	return "\n" + style.Render(ascii) + "\n"
}
