package secret

import "fmt"

func credentialKey(email string) string {
	return "remote:" + email
}

// Remember stores the remote password for email.
func Remember(s SecretStore, email, password string) error {
	if email == "" {
		return fmt.Errorf("remember credentials: email is required")
	}
	return s.Set(credentialKey(email), []byte(password))
}

// Recall returns the remembered password for email. ok is false when none
// was stored.
func Recall(s SecretStore, email string) (password string, ok bool, err error) {
	if email == "" {
		return "", false, nil
	}
	v, err := s.Get(credentialKey(email))
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return string(v), true, nil
}

// Forget drops the remembered password for email.
func Forget(s SecretStore, email string) error {
	return s.Delete(credentialKey(email))
}
