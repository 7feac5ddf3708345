package router

// Route names
const (
	RouteLogin          = "Login"
	RouteHome           = "Home"
	RouteStudents       = "Students"
	RouteStudentProfile = "StudentProfile"
	RouteUploadCSV      = "UploadCSV"
	RouteModelInsights  = "ModelInsights"
	RouteAdmin          = "Admin"
	RoutePredictions    = "Predictions"
	RouteNotFound       = "NotFound"
)

const (
	LoginPath = "/login"
	HomePath  = "/"

	// Prefix of every document title
	ProductTag = "EDPS"
)

// Route is dashboard view with its navigation metadata
type Route struct {
	Name  string
	Path  string
	Title string

	RequiresAuth  bool
	RequiresAdmin bool

	// Matches any path under Path
	CatchAll bool
}

// Routes is dashboard route table in match order. The last one catches any path
func Routes() []Route {
	return []Route{
		{Name: RouteLogin, Path: LoginPath, Title: "Login"},
		{Name: RouteHome, Path: HomePath, Title: "Dashboard Home", RequiresAuth: true},
		{Name: RouteStudents, Path: "/students", Title: "Student List", RequiresAuth: true},
		{Name: RouteStudentProfile, Path: "/students/{id}", Title: "Student Profile", RequiresAuth: true},
		{Name: RouteUploadCSV, Path: "/upload", Title: "Upload CSV", RequiresAuth: true},
		{Name: RouteModelInsights, Path: "/insights", RequiresAuth: true},
		{Name: RouteAdmin, Path: "/admin", Title: "Admin Panel", RequiresAuth: true, RequiresAdmin: true},
		// No own metadata: auth comes from the dashboard layout
		{Name: RoutePredictions, Path: "/predictions", RequiresAuth: true},
		{Name: RouteNotFound, Path: "/", Title: "Page Not Found", CatchAll: true},
	}
}

// DocumentTitle is 'EDPS | <title>' or bare 'EDPS' when route has no title
func (r Route) DocumentTitle() string {
	if r.Title == "" {
		return ProductTag
	}
	return ProductTag + " | " + r.Title
}
