package logging

import "github.com/sirupsen/logrus"

// BaseFields tags entries written by a CLI entry point.
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields describes one served HTTP request.
func RequestFields(requestID, method, path string, status int, token string) logrus.Fields {
	f := logrus.Fields{
		"request_id": requestID,
		"method":     method,
		"path":       path,
		"status":     status,
	}
	if token != "" {
		f["page_token"] = token
	}
	return f
}
