// Package remote implements the document server client over HTTP.
//
// Endpoints:
//
//	POST /register        {"email","password"}      201
//	POST /login           {"email","password"}      200, sets the session cookie
//	GET  /check                                     2xx while the session is valid
//	GET  /toc                                       overview ([]Descriptor)
//	POST /toc             []Descriptor
//	POST /load            {"documentId"}            []PanelRecord
//	POST /save            {"id","data"}
//	POST /store/{id}      multipart field "files"
//	GET  /download/{id}                             raw blob
package remote
