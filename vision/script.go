package vision

// fieldScanScript runs inside the page and flattens the document plus every
// nested shadow root into a flat array of field descriptors.
//
// Traversal starts at document.body at depth 0 and descends into each
// element's shadowRoot at depth+1, capped at depth 20 so cyclic or
// pathological host structures terminate. Elements are de-duplicated by the
// first 200 chars of their outer markup. A second top-level pass picks up
// shadow roots attached directly off the document that the body-relative
// query misses.
const fieldScanScript = `() => {
    const results = [];
    const seenElements = new Set();

    function getLabelText(element) {
        // 1. <label for="..."> bound via the element id
        if (element.id) {
            const label = document.querySelector('label[for="' + element.id + '"]');
            if (label) return label.textContent.trim();
        }

        // 2. aria-label on the element itself
        if (element.getAttribute('aria-label')) {
            return element.getAttribute('aria-label').trim();
        }

        // 3. aria-labelledby reference
        const labelledBy = element.getAttribute('aria-labelledby');
        if (labelledBy) {
            const labelEl = document.getElementById(labelledBy);
            if (labelEl) return labelEl.textContent.trim();
        }

        // 4. placeholder text
        if (element.placeholder) {
            return element.placeholder.trim();
        }

        // 5. ancestor walk: enclosing label, else a label immediately
        //    preceding an ancestor
        let parent = element.parentElement;
        while (parent) {
            if (parent.tagName === 'LABEL') {
                const clone = parent.cloneNode(true);
                const inputs = clone.querySelectorAll('input, select, textarea');
                inputs.forEach(i => i.remove());
                return clone.textContent.trim();
            }
            const prevSibling = parent.previousElementSibling;
            if (prevSibling && prevSibling.tagName === 'LABEL') {
                return prevSibling.textContent.trim();
            }
            parent = parent.parentElement;
        }

        // 6. name attribute with separators spaced out
        if (element.name) {
            return element.name.replace(/[_-]/g, ' ').trim();
        }

        return '';
    }

    function getSelector(element) {
        if (element.id) return '#' + element.id;
        if (element.name) return '[name="' + element.name + '"]';

        const path = [];
        let current = element;
        while (current && current !== document.body) {
            let selector = current.tagName.toLowerCase();
            if (current.className && typeof current.className === 'string') {
                const classes = current.className.trim().split(/\s+/).filter(c => c);
                if (classes.length > 0) {
                    selector += '.' + classes.slice(0, 2).join('.');
                }
            }
            path.unshift(selector);
            current = current.parentElement;
        }
        return path.join(' > ');
    }

    function isVisible(element) {
        const style = window.getComputedStyle(element);
        const rect = element.getBoundingClientRect();
        return (
            style.display !== 'none' &&
            style.visibility !== 'hidden' &&
            style.opacity !== '0' &&
            rect.width > 0 &&
            rect.height > 0
        );
    }

    function traverse(root, depth) {
        if (!root || depth > 20) return;

        const elements = root.querySelectorAll('input, textarea, select, button');

        elements.forEach(el => {
            const elKey = el.outerHTML.substring(0, 200);
            if (seenElements.has(elKey)) return;
            seenElements.add(elKey);

            // Hidden inputs stay: the caller may still need them.
            if (el.tagName !== 'INPUT' || el.type !== 'hidden') {
                if (!isVisible(el)) return;
            }

            // Submission is a separate explicit action.
            if (el.type === 'submit') return;

            const rect = el.getBoundingClientRect();

            const fieldInfo = {
                id: el.id || null,
                name: el.name || null,
                type: el.type || el.tagName.toLowerCase(),
                tagName: el.tagName.toLowerCase(),
                label: getLabelText(el),
                placeholder: el.placeholder || null,
                value: el.value || null,
                required: el.required || el.hasAttribute('aria-required'),
                disabled: el.disabled,
                selector: getSelector(el),
                rect: {
                    x: Math.round(rect.x),
                    y: Math.round(rect.y),
                    width: Math.round(rect.width),
                    height: Math.round(rect.height)
                },
                inShadowDOM: depth > 0
            };

            if (el.tagName === 'SELECT') {
                fieldInfo.options = Array.from(el.options).map(opt => ({
                    value: opt.value,
                    text: opt.textContent.trim(),
                    selected: opt.selected
                }));
            }

            results.push(fieldInfo);
        });

        const allElements = root.querySelectorAll('*');
        allElements.forEach(el => {
            if (el.shadowRoot) {
                traverse(el.shadowRoot, depth + 1);
            }
        });
    }

    traverse(document.body, 0);

    // Shadow roots hanging off the document itself. Re-visiting a host is
    // fine, the markup dedup inside traverse() drops repeats.
    document.querySelectorAll('*').forEach(el => {
        if (el.shadowRoot) {
            traverse(el.shadowRoot, 1);
        }
    });

    return results;
}`

// stealthInitScript masks the usual headless-automation tells before any page
// script runs.
const stealthInitScript = `
    Object.defineProperty(navigator, 'webdriver', {
        get: () => undefined
    });

    window.chrome = {
        runtime: {}
    };

    const originalQuery = window.navigator.permissions.query;
    window.navigator.permissions.query = (parameters) => (
        parameters.name === 'notifications' ?
            Promise.resolve({ state: Notification.permission }) :
            originalQuery(parameters)
    );
`
