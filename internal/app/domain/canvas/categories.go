package canvas

// DefaultCategories are the thesis categories every installation starts with.
var DefaultCategories = []Category{
	{Name: "Market", Color: "#dbeafe", TextColor: "#1e40af",
		Description: `The market will reward X. Example: "Enterprise buyers will consolidate from 5 vendors to 2 within 18 months."`},
	{Name: "Differentiation", Color: "#f3e8ff", TextColor: "#6b21a8",
		Description: `We will win because of X. Example: "Our real-time analytics pipeline will become the reason customers choose us over competitors."`},
	{Name: "Distribution", Color: "#fef3c7", TextColor: "#92400e",
		Description: `Channel will scale. Example: "Partner-led distribution will account for 40% of new logos by end of year."`},
	{Name: "Buyer / Adoption", Color: "#d1fae5", TextColor: "#065f46",
		Description: `The buyer will pay for X. Example: "Mid-market CFOs will pay a premium for automated compliance reporting."`},
	{Name: "Capability", Color: "#ffe4e6", TextColor: "#9f1239",
		Description: `We can become good at X. Example: "The team will build production-grade ML ops capability within two quarters."`},
	{Name: "Category", Color: "#cffafe", TextColor: "#155e75",
		Description: `This category will shift toward Y. Example: "The industry will move from on-prem to cloud-native delivery as the default."`},
}
