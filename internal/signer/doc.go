// Package signer implements payload encryption and signing for the legacy (3.1)
// local protocol.
//
// Set commands carry their JSON body encrypted with the device key and signed
// with a truncated MD5 digest:
//
//	data      = base64(AES-ECB(key, PKCS7(json)))
//	signature = hex(md5("data=" + data + "||lpv=" + version + "||" + key))[8:24]
//	payload   = version + signature + data
//
// Status commands are sent in the clear and do not use this package.
//
// # Thread Safety
//
// A Cipher holds no mutable state and is safe for concurrent use.
package signer
