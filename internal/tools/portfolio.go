package tools

import "context"

const (
	GetProjects     = "getProjects"
	GetPresentation = "getPresentation"
	GetResume       = "getResume"
	GetContact      = "getContact"
	GetSkills       = "getSkills"
	GetSports       = "getSports"
	GetCrazy        = "getCrazy"
	GetInternship   = "getInternship"
)

// Presentation is the structured result of getPresentation.
type Presentation struct {
	Presentation string `json:"presentation"`
}

const internshipSummary = `Here's what I'm looking for 👇

- 📅 **Duration**: Open to internships or full-time positions
- 🌍 **Location**: Remote or on-site opportunities
- 🧑‍💻 **Focus**: AI development, full-stack web apps, SaaS products
- 🛠️ **Stack**: TypeScript, Vue/Nuxt, React/Next.js, Python, Tailwind CSS
- ✅ **What I bring**: Strong technical skills, quick learner, passionate about innovation
- 🔥 I move fast, learn faster, and I'm eager for challenges

📬 **Contact me** via:
- Email: your.email@example.com
- LinkedIn: [Your LinkedIn]
- GitHub: [Your GitHub]

Let's build something amazing together ✌️`

// Portfolio returns the portfolio tool catalog in prompt order.
func Portfolio() []Tool {
	return []Tool{
		{
			Name:        GetProjects,
			Title:       "My Projects",
			Description: "This tool will show a list of all projects",
			Execute:     canned("Here are all my projects (above)! Feel free to ask me more about them!"),
		},
		{
			Name:        GetPresentation,
			Title:       "About Me",
			Description: `This tool returns a concise personal introduction. It is used to answer the question "Who are you?" or "Tell me about yourself"`,
			Execute: func(context.Context, map[string]any) (any, error) {
				return Presentation{
					Presentation: "I'm a full-stack developer specializing in AI. I'm passionate about building innovative solutions that combine cutting-edge technology with exceptional user experiences.",
				}, nil
			},
		},
		{
			Name:        GetResume,
			Title:       "Resume",
			Description: "This tool shows my resume",
			Execute:     canned("Here is my resume above. Let me know if you want details on any experience!"),
		},
		{
			Name:        GetContact,
			Title:       "Contact Information",
			Description: "This tool shows contact information",
			Execute:     canned("Here is my contact information above. Feel free to reach out, I will be happy to answer you! 😉"),
		},
		{
			Name:        GetSkills,
			Title:       "My Skills",
			Description: "This tool shows a list of skills",
			Execute:     canned("You can see all my skills above."),
		},
		{
			Name:        GetSports,
			Title:       "Sports & Activities",
			Description: "This tool will show some sports photos",
			Execute:     canned("Here are my best pictures doing sports!"),
		},
		{
			Name:        GetCrazy,
			Title:       "Adventures",
			Description: "This tool will show the craziest thing I've ever done. Use it when the user asks something like: 'What's the craziest thing you've ever done?'",
			Execute:     canned("Above is a photo of an amazing adventure! One of the craziest things I have ever done."),
		},
		{
			Name:        GetInternship,
			Title:       "Opportunities",
			Description: "Gives a summary of what kind of internship/opportunities I'm looking for, plus contact info. Use this tool when the user asks about job search or how to contact me for opportunities.",
			Execute:     canned(internshipSummary),
		},
	}
}

// NewPortfolioRegistry builds a registry holding the portfolio catalog.
func NewPortfolioRegistry() *Registry {
	return New(Portfolio()...)
}

func canned(text string) Func {
	return func(context.Context, map[string]any) (any, error) {
		return text, nil
	}
}
