// Package vkapi talks to the remote notification API.
//
// It covers exactly one method, secure.sendNotification: building and
// signing the request parameters (Builder, Sign), sending them over HTTP
// (Client) and turning the JSON body into a Response. The signature scheme
// is MD5 over the key-sorted "key=value" pairs followed by the application
// secret; see Sign.
package vkapi
