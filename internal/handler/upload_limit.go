package handler

import "strconv"

func formatUploadLimit(bytes int64) string {
	const mb = 1024 * 1024
	if bytes <= 0 {
		return "0MB"
	}
	if bytes < mb {
		return strconv.FormatInt(bytes/1024, 10) + "KB"
	}
	return strconv.FormatInt(bytes/mb, 10) + "MB"
}
