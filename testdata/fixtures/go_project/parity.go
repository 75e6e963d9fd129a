package project

// isEven and isOdd are mutually recursive.
func isEven(n int) bool {
	if n == 0 {
		return true
	}
	return isOdd(n - 1)
}

func isOdd(n int) bool {
	if n == 0 {
		return false
	}
	return isEven(n - 1)
}

// EvenIDs keeps users with an even ID.
func EvenIDs(users []*User) []*User {
	var out []*User
	for _, u := range users {
		if isEven(u.ID) {
			out = append(out, u)
		}
	}
	return out
}
