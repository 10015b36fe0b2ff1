// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package tlsconn

func srvCliStr(isClient bool) string {
	if isClient {
		return "client"
	}
	return "server"
}
