/*
Package document holds the parsed page model and the default browsing
context that creates it.

A Builder opens documents three ways:

  - OpenFromResponse parses a downloaded body. The media type comes from
    Content-Type or is sniffed with mimetype; the charset comes from a BOM,
    the header, a <meta> declaration, or chardet, and the bytes are decoded
    to UTF-8 before goquery parses them. Non-markup bodies open as blank
    documents so the caller still gets an address to work with.
  - OpenBlank creates an empty document at an address.
  - OpenFromURL downloads an address and opens the result.

Documents are released with Close; accessors then report ErrReleased.
*/
package document
