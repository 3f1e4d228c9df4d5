package auth

// LoginPageTitle is the fixed title of the login form
const LoginPageTitle = "User Login"

// IndexView is the view model of the index page.
type IndexView struct {
	IsLogin bool
	Name    string
}

// LoginView is the view model of the login form.
type LoginView struct {
	Title string
}

// LoginForm holds a login submission. It is never persisted and not validated;
// empty fields are accepted.
type LoginForm struct {
	Username string
	Password string
}
